package storage

import (
	"fmt"
	"net/http"
	"time"
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// DetectImageType sniffs the leading bytes of an upload and reports whether
// it is one of the accepted profile image formats.
func DetectImageType(head []byte) (string, bool) {
	contentType := http.DetectContentType(head)
	_, ok := imageExtensions[contentType]
	return contentType, ok
}

// ProfileImageKey names the object for a card's uploaded profile image.
func ProfileImageKey(cardID string, at time.Time) string {
	return fmt.Sprintf("profile_images/%s_%d", cardID, at.UnixMilli())
}
