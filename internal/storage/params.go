package storage

import (
	"net/url"
	"regexp"
	"strings"
)

// paramPattern matches key=value inside a "k=v&k2=v2" or "k=v; k2=v2" string.
func paramPattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`(^|&|; *)` + regexp.QuoteMeta(url.QueryEscape(key)) + `=(.*?)($|&|; *)`)
}

// ParamGet returns the unescaped value stored under key in str.
func ParamGet(str, key string) (string, bool) {
	m := paramPattern(key).FindStringSubmatch(str)
	if m == nil {
		return "", false
	}
	v, err := url.QueryUnescape(m[2])
	if err != nil {
		return m[2], true
	}
	return v, true
}

// ParamSet stores value under key in str. An existing pair is replaced in
// place; otherwise the pair is appended with "&".
func ParamSet(str, key, value string) string {
	pair := url.QueryEscape(key) + "=" + url.QueryEscape(value)

	re := paramPattern(key)
	if loc := re.FindStringSubmatchIndex(str); loc != nil {
		// loc[2:4] is the leading separator, loc[6:8] the trailing one.
		return str[:loc[3]] + pair + str[loc[6]:]
	}

	if str == "" {
		return pair
	}
	if strings.HasSuffix(str, "&") {
		return str + pair
	}
	return str + "&" + pair
}
