package discovery

import "strings"

// semanticConcepts are description fragments naming a page region rather
// than a single control. Matching is case-insensitive substring.
var semanticConcepts = []string{
	"form",
	"login form",
	"signup form",
	"sign in form",
	"sign up form",
	"registration form",
	"contact form",
	"search form",
	"modal",
	"dialog",
	"popup",
	"menu",
	"navigation",
	"header",
	"footer",
	"sidebar",
	"card",
	"panel",
	"section",
	"container",
	"group",
	"region",
	"area",
	"zone",
}

// IsSemanticConcept reports whether the description names a semantic page
// region, which routes discovery through the vision strategy first
func IsSemanticConcept(description string) bool {
	lowered := strings.ToLower(description)
	for _, concept := range semanticConcepts {
		if strings.Contains(lowered, concept) {
			return true
		}
	}
	return false
}
