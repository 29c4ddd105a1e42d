package gateway

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/cuongbtq/papergen/internal/domain"
	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxTotalBytes is the request size ceiling when none is configured
const DefaultMaxTotalBytes = 10 << 20

// Item is one uploaded document
type Item struct {
	Name string
	Data []byte
}

// Limits bounds what a single request may carry
type Limits struct {
	MaxItems      int
	MaxItemBytes  int64
	MaxTotalBytes int64
	// AllowedTypes restricts detected content types; empty allows anything
	AllowedTypes []string
}

func (l Limits) maxTotal() int64 {
	if l.MaxTotalBytes <= 0 {
		return DefaultMaxTotalBytes
	}
	return l.MaxTotalBytes
}

func (l Limits) maxItem() int64 {
	if l.MaxItemBytes <= 0 || l.MaxItemBytes > l.maxTotal() {
		return l.maxTotal()
	}
	return l.MaxItemBytes
}

// envelopeSlack covers JSON or multipart framing around the documents
const envelopeSlack = 64 << 10

// EncodedLimit bounds a transport body that carries the documents base64 encoded
func (l Limits) EncodedLimit() int64 {
	return int64(base64.StdEncoding.EncodedLen(int(l.maxTotal()))) + envelopeSlack
}

// Validate checks a decoded request before any job is created
func (l Limits) Validate(items []Item) error {
	if len(items) == 0 {
		return domain.NewValidationError("at least one document is required")
	}
	if l.MaxItems > 0 && len(items) > l.MaxItems {
		return domain.NewValidationError("too many documents: %d (max %d)", len(items), l.MaxItems)
	}

	var total int64
	for _, item := range items {
		size := int64(len(item.Data))
		if size == 0 {
			return domain.NewValidationError("document %s is empty", item.Name)
		}
		if size > l.maxItem() {
			return domain.NewTooLargeError("document %s is %d bytes (max %d)", item.Name, size, l.maxItem())
		}
		total += size
		if total > l.maxTotal() {
			return domain.NewTooLargeError("documents exceed %d bytes in total", l.maxTotal())
		}
		if err := l.checkType(item); err != nil {
			return err
		}
	}
	return nil
}

func (l Limits) checkType(item Item) error {
	if len(l.AllowedTypes) == 0 {
		return nil
	}
	detected := mimetype.Detect(item.Data)
	for m := detected; m != nil; m = m.Parent() {
		for _, allowed := range l.AllowedTypes {
			if m.Is(allowed) {
				return nil
			}
		}
	}
	return domain.NewValidationError("document %s has unsupported type %s", item.Name, detected.String())
}

// DecodeBase64 decodes the "files" array of a JSON request. Entries may be
// bare standard base64 or data URLs. Oversized entries are rejected before
// they are decoded.
func (l Limits) DecodeBase64(files []string) ([]Item, error) {
	items := make([]Item, 0, len(files))
	for i, encoded := range files {
		name := "file" + strconv.Itoa(i)
		if comma := strings.IndexByte(encoded, ','); strings.HasPrefix(encoded, "data:") && comma >= 0 {
			encoded = encoded[comma+1:]
		}
		encoded = strings.TrimSpace(encoded)

		if int64(base64.StdEncoding.DecodedLen(len(encoded))) > l.maxItem()+2 {
			return nil, domain.NewTooLargeError("document %s exceeds %d bytes", name, l.maxItem())
		}

		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, domain.NewValidationError("document %s is not valid base64", name)
		}
		items = append(items, Item{Name: name, Data: data})
	}
	return items, nil
}
