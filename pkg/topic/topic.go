// Package topic validates MQTT topic names and topic filters as they appear
// in PUBLISH, will messages, SUBSCRIBE and UNSUBSCRIBE.
// MQTT 3.1.1 Section 4.7, MQTT 5.0 Section 4.7.
package topic

import (
	"strings"
)

const (
	// Separator is the topic level separator.
	Separator = '/'

	// MultiWildcard matches any number of levels (must be last).
	MultiWildcard = '#'

	// SingleWildcard matches exactly one level.
	SingleWildcard = '+'

	// SharePrefix introduces an MQTT 5.0 shared subscription filter.
	SharePrefix = "$share/"
)

// ValidateName validates a topic name (no wildcards allowed).
func ValidateName(name string) error {
	if err := checkLength(name); err != nil {
		return err
	}
	if i := strings.IndexAny(name, "#+\x00"); i >= 0 {
		if name[i] == 0 {
			return ErrNullCharacter
		}
		return ErrWildcardInName
	}
	return nil
}

// ValidateFilter validates a topic filter, including the $share/{name}/
// prefix of shared subscriptions.
func ValidateFilter(filter string) error {
	if err := checkLength(filter); err != nil {
		return err
	}
	if strings.HasPrefix(filter, SharePrefix) {
		share, rest, ok := SplitShared(filter)
		if !ok || strings.ContainsAny(share, "#+") {
			return ErrInvalidSharedSubscription
		}
		filter = rest
	}

	levels := strings.Split(filter, string(Separator))
	last := len(levels) - 1
	for i, level := range levels {
		if strings.IndexByte(level, 0) >= 0 {
			return ErrNullCharacter
		}
		if strings.IndexByte(level, MultiWildcard) >= 0 && (level != "#" || i != last) {
			return ErrInvalidMultiWildcard
		}
		if strings.IndexByte(level, SingleWildcard) >= 0 && level != "+" {
			return ErrInvalidSingleWildcard
		}
	}
	return nil
}

// SplitShared splits "$share/{name}/{filter}" into its share name and filter.
func SplitShared(filter string) (shareName, actualFilter string, ok bool) {
	rest, found := strings.CutPrefix(filter, SharePrefix)
	if !found {
		return "", "", false
	}
	shareName, actualFilter, found = strings.Cut(rest, string(Separator))
	if !found || shareName == "" || actualFilter == "" {
		return "", "", false
	}
	return shareName, actualFilter, true
}

// HasWildcard reports whether filter contains + or #.
func HasWildcard(filter string) bool {
	return strings.ContainsAny(filter, "#+")
}

func checkLength(s string) error {
	switch {
	case s == "":
		return ErrEmptyTopic
	case len(s) > 65535:
		return ErrTopicTooLong
	}
	return nil
}
