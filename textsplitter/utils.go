package textsplitter

import (
	"regexp"
	"strings"
)

// SplitTextKeepSeparator splits text on separator, keeping the separator at the start of each part after the first.
func SplitTextKeepSeparator(text string, separator string) []string {
	if separator == "" {
		if text == "" {
			return []string{}
		}
		return []string{text}
	}
	parts := strings.Split(text, separator)
	result := make([]string, 0, len(parts))
	for i, part := range parts {
		if i > 0 {
			part = separator + part
		}
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

// SplitBySep returns a function that splits text by a separator.
func SplitBySep(sep string) func(string) []string {
	return func(text string) []string {
		return SplitTextKeepSeparator(text, sep)
	}
}

// SplitByRegex returns a function that returns every match of regexStr.
// It panics on an invalid expression.
func SplitByRegex(regexStr string) func(string) []string {
	re := regexp.MustCompile(regexStr)
	return func(text string) []string {
		return re.FindAllString(text, -1)
	}
}

// SplitByChar returns a function that splits text into characters.
func SplitByChar() func(string) []string {
	return func(text string) []string {
		return strings.Split(text, "")
	}
}
