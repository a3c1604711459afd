package input

import "strings"

// StringSliceFlag implements flag.Value and pflag.Value for repeated or
// comma-separated string flags.
type StringSliceFlag []string

func (s *StringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

// Set splits value on commas and appends each non-empty part.
func (s *StringSliceFlag) Set(value string) error {
	for _, v := range strings.Split(value, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			*s = append(*s, v)
		}
	}
	return nil
}

// Type names the flag kind in cobra help output.
func (s *StringSliceFlag) Type() string { return "strings" }
