package ledger

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// idAlphabet skips characters that are easy to misread (0/O, 1/I/L).
const idAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

var (
	prefixPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,7}$`)
	idPattern     = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,7}-\d{6}-[` + idAlphabet + `]{4}$`)
)

// NewID generates an entry id of the form {PREFIX}-{yymmdd}-{random4}.
func NewID(prefix string, now time.Time) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if !prefixPattern.MatchString(prefix) {
		return "", fmt.Errorf("invalid ledger id prefix %q", prefix)
	}
	suffix, err := gonanoid.Generate(idAlphabet, 4)
	if err != nil {
		return "", fmt.Errorf("failed to generate ledger id: %w", err)
	}
	return fmt.Sprintf("%s-%s-%s", prefix, now.UTC().Format("060102"), suffix), nil
}

// ValidID reports whether id has the generated shape.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}
