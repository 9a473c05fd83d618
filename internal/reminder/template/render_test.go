package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderSubstitutesKnownPlaceholders(t *testing.T) {
	out, unresolved := Render("Hi {{clinic_name}}, {{ invoice_number }} is {{days_overdue}} days late.", map[string]string{
		"clinic_name":    "Sunrise Dental",
		"invoice_number": "INV-1",
		"days_overdue":   "7",
	})
	assert.Equal(t, "Hi Sunrise Dental, INV-1 is 7 days late.", out)
	assert.Empty(t, unresolved)
}

func TestRenderReportsUnknownPlaceholders(t *testing.T) {
	out, unresolved := Render("{{b}} {{a}} {{b}} {{clinic_name}}", map[string]string{"clinic_name": "X"})
	assert.Equal(t, "{{b}} {{a}} {{b}} X", out)
	assert.Equal(t, []string{"a", "b"}, unresolved)
}

func TestRenderDoesNotRescanValues(t *testing.T) {
	out, unresolved := Render("Note: {{custom_message}}", map[string]string{
		"custom_message": "{{clinic_name}} pay now",
		"clinic_name":    "leak",
	})
	assert.Equal(t, "Note: {{clinic_name}} pay now", out)
	assert.Empty(t, unresolved)
}

func TestRenderIgnoresMalformedMarkup(t *testing.T) {
	out, unresolved := Render("{{ not valid }} {{}} {clinic_name}", map[string]string{"clinic_name": "X"})
	assert.Equal(t, "{{ not valid }} {{}} {clinic_name}", out)
	assert.Empty(t, unresolved)
}
