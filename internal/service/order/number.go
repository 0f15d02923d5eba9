package order

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// newOrderNumber is ORD<yymmdd> followed by six Crockford base32 characters
// taken from the random half of a ULID.
func newOrderNumber(now time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	s := id.String()
	return "ORD" + now.UTC().Format("060102") + s[len(s)-6:], nil
}
