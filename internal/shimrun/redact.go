package shimrun

import "strings"

// sensitiveEnvKeys are the KEY names (case-insensitive) that trigger
// KEY=*** redaction for a KEY=VAL-shaped argv element.
var sensitiveEnvKeys = map[string]bool{
	"TOKEN":      true,
	"PASSWORD":   true,
	"SECRET":     true,
	"KEY":        true,
	"APIKEY":     true,
	"ACCESS-KEY": true,
	"SECRET-KEY": true,
}

// sensitiveFlags are flag names (case-insensitive) whose value (the next
// argv element) is always redacted.
var sensitiveFlags = map[string]bool{
	"--token":       true,
	"--password":    true,
	"--secret":      true,
	"-p":             true,
	"--apikey":      true,
	"--access-key":  true,
	"--secret-key":  true,
	"--auth-token":  true,
	"--bearer-token": true,
	"--api-token":   true,
	"-h":            true, // normalized lower for case-insensitive compare
	"--header":      true,
}

// sensitiveHeaderKeys are the `Key` half of a `-H "Key: Value"` argument
// that force the Value to be redacted.
var sensitiveHeaderKeys = map[string]bool{
	"authorization":    true,
	"x-api-key":        true,
	"x-auth-token":     true,
	"x-access-token":   true,
	"cookie":           true,
	"set-cookie":       true,
	"x-csrf-token":     true,
	"x-session-token":  true,
}

var headerValueHints = []string{"bearer ", "token", "key", "secret"}

// RedactArgv returns a copy of argv with sensitive values replaced by "***"
// per the shim's redaction rules. raw disables all redaction
// (SHIM_LOG_OPTS=raw).
func RedactArgv(argv []string, raw bool) []string {
	if raw {
		return append([]string{}, argv...)
	}

	out := make([]string, len(argv))
	copy(out, argv)

	for i := 0; i < len(out); i++ {
		arg := out[i]

		if key, _, ok := strings.Cut(arg, "="); ok {
			if sensitiveEnvKeys[strings.ToUpper(key)] {
				out[i] = key + "=***"
				continue
			}
		}

		lower := strings.ToLower(arg)
		if !sensitiveFlags[lower] {
			continue
		}
		out[i] = "***"
		if i+1 >= len(out) {
			continue
		}

		if lower == "-h" || lower == "--header" {
			out[i+1] = redactHeaderValue(out[i+1])
		} else {
			out[i+1] = "***"
		}
		i++
	}

	return out
}

// redactHeaderValue handles "-H 'Key: Value'" specifically: if Key is
// sensitive, or Value looks like a bearer/token/key/secret, the value part
// is replaced with *** while the "Key:" prefix is preserved.
func redactHeaderValue(header string) string {
	key, value, ok := strings.Cut(header, ":")
	if !ok {
		return header
	}
	trimmedKey := strings.TrimSpace(key)
	valueLower := strings.ToLower(value)

	sensitive := sensitiveHeaderKeys[strings.ToLower(trimmedKey)]
	if !sensitive {
		for _, hint := range headerValueHints {
			if strings.Contains(valueLower, hint) {
				sensitive = true
				break
			}
		}
	}
	if !sensitive {
		return header
	}
	return trimmedKey + ": ***"
}
