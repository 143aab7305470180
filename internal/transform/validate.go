package transform

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/ownerfi/dealflow/internal/model"
)

// statusForSale is the only provider status accepted for ingestion. Rentals,
// pending and sold records are rejected at validation time.
const statusForSale = "FOR_SALE"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate rejects listings missing the fields everything downstream depends
// on, and listings not actively for sale. An empty status passes; some search
// results omit it and the detail fetch has already scoped to sale listings.
func Validate(l *model.Listing) error {
	if err := validate.Struct(l); err != nil {
		var verrs validator.ValidationErrors
		if eris.As(err, &verrs) && len(verrs) > 0 {
			return eris.Errorf("transform: listing %s invalid: missing or malformed %s", l.NativeID, strings.ToLower(verrs[0].Field()))
		}
		return eris.Wrap(err, "transform: validate listing")
	}

	if l.HomeStatus != "" && l.HomeStatus != statusForSale {
		return eris.Errorf("transform: listing %s not for sale (status %s)", l.NativeID, l.HomeStatus)
	}

	return nil
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
	"&nbsp;", " ",
)

// SanitizeDescription strips markup and control characters from provider
// descriptions and collapses runs of whitespace. The cleaned text is what the
// classifiers scan.
func SanitizeDescription(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = entityReplacer.Replace(s)
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
