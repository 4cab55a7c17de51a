package risk

import (
	"fmt"
	"strings"
)

// Class is the top-level kind of sensitive item.
type Class string

const (
	ClassEmail           Class = "email"
	ClassPhone           Class = "phone"
	ClassNationalID      Class = "nationalId"
	ClassCreditCard      Class = "creditCard"
	ClassAddress         Class = "address"
	ClassIPAddress       Class = "ipAddress"
	ClassPersonName      Class = "personName"
	ClassDocument        Class = "document"
	ClassEntity          Class = "entity"
	ClassToxicity        Class = "toxicity"
	ClassPolicyViolation Class = "policyViolation"
	ClassFaceDetected    Class = "faceDetected"
)

// Classes lists every known class in display order.
var Classes = []Class{
	ClassEmail, ClassPhone, ClassNationalID, ClassCreditCard, ClassAddress,
	ClassIPAddress, ClassPersonName, ClassDocument, ClassEntity, ClassToxicity,
	ClassPolicyViolation, ClassFaceDetected,
}

// Valid reports whether c is one of the known classes.
func (c Class) Valid() bool {
	for _, k := range Classes {
		if k == c {
			return true
		}
	}
	return false
}

// Category is a class plus an optional subtype, e.g. nationalId/aadhaar.
type Category struct {
	Class   Class  `json:"class"`
	Subtype string `json:"subtype,omitempty"`
}

// Cat is shorthand for building a Category.
func Cat(class Class, subtype string) Category {
	return Category{Class: class, Subtype: subtype}
}

func (c Category) String() string {
	if c.Subtype == "" {
		return string(c.Class)
	}
	return string(c.Class) + "/" + c.Subtype
}

// ParseCategory parses "class" or "class/subtype".
func ParseCategory(s string) (Category, error) {
	class, subtype, _ := strings.Cut(strings.TrimSpace(s), "/")
	c := Category{Class: Class(class), Subtype: subtype}
	if !c.Class.Valid() {
		return Category{}, fmt.Errorf("unknown category class %q", class)
	}
	return c, nil
}

// severityTable is the single category to severity mapping. Subtype keys
// ("class/subtype") win over class keys.
var severityTable = map[string]Severity{
	"email":      SeverityHigh,
	"phone":      SeverityHigh,
	"nationalId": SeverityCritical,
	"creditCard": SeverityCritical,
	"address":    SeverityHigh,
	"ipAddress":  SeverityMedium,
	"personName": SeverityMedium,

	"address/postal_code": SeverityLow,

	"document":                  SeverityHigh,
	"document/aadhaar":          SeverityCritical,
	"document/passport":         SeverityCritical,
	"document/national_id":      SeverityCritical,
	"document/id_card":          SeverityCritical,
	"document/driving_license":  SeverityHigh,
	"document/bank_statement":   SeverityHigh,
	"document/official_letter":  SeverityMedium,
	"document/certificate":      SeverityCritical,
	"document/license":          SeverityCritical,
	"document/card":             SeverityCritical,
	"document/id":               SeverityCritical,
	"entity":                    SeverityMedium,
	"toxicity":                  SeverityHigh,
	"policyViolation":           SeverityHigh,
	"policyViolation/spam":      SeverityMedium,
	"policyViolation/violence":  SeverityCritical,
	"faceDetected":              SeverityMedium,
}

// escalation raises a category's severity when confidence clears a bar.
type escalation struct {
	category Category
	above    float64
	severity Severity
}

var escalations = []escalation{
	{category: Cat(ClassEntity, "person"), above: 0.9, severity: SeverityHigh},
}

// SeverityFor returns the fixed severity of a category at a given confidence.
// Unknown categories fall back to medium.
func SeverityFor(c Category, confidence float64) Severity {
	sev, ok := severityTable[c.String()]
	if !ok {
		sev, ok = severityTable[string(c.Class)]
	}
	if !ok {
		sev = SeverityMedium
	}
	for _, e := range escalations {
		if e.category == c && confidence > e.above {
			sev = MaxSeverity(sev, e.severity)
		}
	}
	return sev
}

// AssessedSeverity applies the source-rating rule: a severity the analyzer
// reported for the item itself raises the table severity, never lowers it.
func AssessedSeverity(c Category, confidence float64, rating Severity) Severity {
	return MaxSeverity(SeverityFor(c, confidence), rating)
}

// canonical returns the PII class two categories are compared under when
// deciding whether they describe the same value.
func canonical(c Category) Class {
	if c.Class == ClassEntity {
		switch c.Subtype {
		case "person":
			return ClassPersonName
		case "location":
			return ClassAddress
		}
	}
	return c.Class
}

// Compatible reports whether two categories may describe the same value.
func Compatible(a, b Category) bool {
	return a == b || canonical(a) == canonical(b)
}
