package dto

import (
	"net/url"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	orderIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,100}$`)
	pin4Re    = regexp.MustCompile(`^[0-9]{4}$`)
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		Register(v)
	}
}

// Register installs the custom tags on v. Decimals are validated through their
// string form.
func Register(v *validator.Validate) {
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	_ = v.RegisterValidation("order_id", matches(orderIDRe))
	_ = v.RegisterValidation("pin4", matches(pin4Re))
	_ = v.RegisterValidation("money", validateMoney)
	_ = v.RegisterValidation("safe_url", validateSafeURL)
	_ = v.RegisterValidation("json_object", validateJSONObject)
	v.RegisterTagNameFunc(jsonFieldName)
}

func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		return d.String()
	}
	return nil
}

func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// validateMoney accepts decimals with at most two fractional digits.
func validateMoney(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return d.Exponent() >= -2 || d.Equal(d.Truncate(2))
}

// validateSafeURL accepts only http/https URLs.
func validateSafeURL(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if raw == "" {
		return true // optional field; use "required" tag to enforce presence
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func validateJSONObject(fl validator.FieldLevel) bool {
	raw := strings.TrimSpace(string(fl.Field().Bytes()))
	return raw == "" || raw == "null" || strings.HasPrefix(raw, "{")
}

func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// SanitizeStruct trims whitespace and strips control characters from every
// exported string field (including *string) of a struct pointer.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(sanitize(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			elem := f.Elem()
			if elem.Kind() == reflect.String {
				elem.SetString(sanitize(elem.String()))
			}
		}
	}
}

func sanitize(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s))
}

// Description returns a cleaned description capped at MaxDescriptionLength runes,
// or nil when nothing is left.
func Description(s *string) *string {
	if s == nil {
		return nil
	}
	clean := sanitize(*s)
	if clean == "" {
		return nil
	}
	if runes := []rune(clean); len(runes) > MaxDescriptionLength {
		clean = strings.TrimSpace(string(runes[:MaxDescriptionLength]))
	}
	return &clean
}

func missing(checks map[string]bool) []string {
	var names []string
	for name, absent := range checks {
		if absent {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ValidReference reports whether s can serve as a caller-supplied reference id.
func ValidReference(s string) bool {
	return orderIDRe.MatchString(s)
}
