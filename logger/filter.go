package logger

import (
	"net/url"
	"reflect"
	"strings"
)

const (
	// DefaultMaskValue replaces sensitive values in log output
	DefaultMaskValue = "***"
	// DefaultMaxDepth bounds recursion into nested values
	DefaultMaxDepth = 8
)

// FilterConfig lists the field names treated as sensitive.
// Matching is a case-insensitive substring match.
type FilterConfig struct {
	SensitiveFields []string
	MaskValue       string
}

// DefaultFilterConfig covers credentials that flow through outbound API calls.
func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		SensitiveFields: []string{
			"password", "passwd", "secret",
			"token", "access_token", "refresh_token",
			"authorization", "api_key", "apikey",
			"cookie", "credential",
		},
		MaskValue: DefaultMaskValue,
	}
}

// SensitiveDataFilter masks sensitive values before they reach the log writer.
type SensitiveDataFilter struct {
	config *FilterConfig
}

// NewSensitiveDataFilter creates a filter; nil selects DefaultFilterConfig.
func NewSensitiveDataFilter(config *FilterConfig) *SensitiveDataFilter {
	if config == nil {
		config = DefaultFilterConfig()
	}
	if config.MaskValue == "" {
		config.MaskValue = DefaultMaskValue
	}
	return &SensitiveDataFilter{config: config}
}

// FilterString masks value when key is sensitive. URLs keep their structure
// with only the password replaced.
func (f *SensitiveDataFilter) FilterString(key, value string) string {
	if !f.isSensitiveField(key) || value == "" {
		return value
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return f.maskURL(value)
	}
	return f.config.MaskValue
}

// FilterValue masks sensitive entries inside maps, slices and structs.
func (f *SensitiveDataFilter) FilterValue(key string, value any) any {
	return f.filter(key, value, DefaultMaxDepth)
}

// FilterFields filters every entry of fields.
func (f *SensitiveDataFilter) FilterFields(fields map[string]any) map[string]any {
	filtered := make(map[string]any, len(fields))
	for k, v := range fields {
		filtered[k] = f.FilterValue(k, v)
	}
	return filtered
}

func (f *SensitiveDataFilter) filter(key string, value any, depth int) any {
	if f.isSensitiveField(key) {
		return f.config.MaskValue
	}
	if value == nil || depth <= 0 {
		return value
	}

	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = f.filter(k, item, depth-1)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, item := range v {
			out[k] = f.FilterString(k, item)
		}
		return out
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
			return value
		}
		return f.filterStruct(rv.Elem(), depth)
	case reflect.Struct:
		return f.filterStruct(rv, depth)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return value
		}
		out := make([]any, rv.Len())
		for i := range rv.Len() {
			out[i] = f.filter(key, rv.Index(i).Interface(), depth-1)
		}
		return out
	default:
		return value
	}
}

func (f *SensitiveDataFilter) filterStruct(rv reflect.Value, depth int) map[string]any {
	rt := rv.Type()
	out := make(map[string]any, rv.NumField())
	for i := range rv.NumField() {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := jsonFieldName(&field)
		if name == "" {
			continue
		}
		out[name] = f.filter(name, rv.Field(i).Interface(), depth-1)
	}
	return out
}

// jsonFieldName prefers the json tag; "" means the field is skipped.
func jsonFieldName(field *reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return field.Name
	}
	return name
}

func (f *SensitiveDataFilter) isSensitiveField(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range f.config.SensitiveFields {
		if strings.Contains(lower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

func (f *SensitiveDataFilter) maskURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return f.config.MaskValue
	}
	if parsed.User == nil {
		return raw
	}
	if _, ok := parsed.User.Password(); !ok {
		return raw
	}
	user := parsed.User.Username()
	parsed.User = nil
	scheme, rest, _ := strings.Cut(parsed.String(), "://")
	return scheme + "://" + user + ":" + f.config.MaskValue + "@" + rest
}
