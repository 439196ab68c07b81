package analytics

import (
	"fmt"
	"regexp"
)

// Detector recognizes one class of PII in a string value. Detection walks
// payload values recursively; the first matching detector (in set order)
// decides the outcome, so more specific patterns are registered first.
type Detector interface {
	Name() string
	Detect(value string) bool
}

// DetectorSet is the ordered, versioned collection of detectors applied to
// every tracked payload. Adding a pattern bumps the version so scrub
// decisions are attributable to the detector set that made them.
type DetectorSet struct {
	Version   int
	detectors []Detector
}

// Match reports which PII class was found in a payload value.
type Match struct {
	Detector string
	Field    string
}

type regexpDetector struct {
	name    string
	pattern *regexp.Regexp
}

func (d regexpDetector) Name() string             { return d.name }
func (d regexpDetector) Detect(value string) bool { return d.pattern.MatchString(value) }

// DefaultDetectors is detector set version 3: national ID numbers, emails,
// phone numbers, postal codes, and a full-name heuristic, in that order.
// The national ID pattern precedes the phone pattern because an 11-digit ID
// would otherwise be reported as a phone number.
func DefaultDetectors() *DetectorSet {
	return &DetectorSet{
		Version: 3,
		detectors: []Detector{
			regexpDetector{
				name:    "national_id",
				pattern: regexp.MustCompile(`\b[1-9][0-9]{10}\b`),
			},
			regexpDetector{
				name:    "email",
				pattern: regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
			},
			regexpDetector{
				name:    "phone",
				pattern: regexp.MustCompile(`(\+|\b0)[0-9][0-9 \-()]{8,13}[0-9]`),
			},
			regexpDetector{
				name:    "postal_code",
				pattern: regexp.MustCompile(`\b[0-9]{5}\b`),
			},
			regexpDetector{
				name:    "full_name",
				pattern: regexp.MustCompile(`^\p{Lu}\p{Ll}+(?: \p{Lu}\p{Ll}+)+$`),
			},
		},
	}
}

// Scan walks the payload and returns the first PII match found, or nil.
// Only string values are inspected; keys and numbers carry structure, not
// free-form identity data.
func (s *DetectorSet) Scan(payload map[string]any) *Match {
	return s.scanValue("", payload)
}

func (s *DetectorSet) scanValue(field string, value any) *Match {
	switch v := value.(type) {
	case string:
		for _, d := range s.detectors {
			if d.Detect(v) {
				return &Match{Detector: d.Name(), Field: field}
			}
		}
	case map[string]any:
		for key, nested := range v {
			if m := s.scanValue(joinField(field, key), nested); m != nil {
				return m
			}
		}
	case []any:
		for i, nested := range v {
			if m := s.scanValue(fmt.Sprintf("%s[%d]", field, i), nested); m != nil {
				return m
			}
		}
	}
	return nil
}

func joinField(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
