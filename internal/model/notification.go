package model

import "time"

// Variant selects the tone of a notification.
type Variant string

const (
	VariantSuccess Variant = "success"
	VariantError   Variant = "error"
	VariantInfo    Variant = "info"
	VariantWarning Variant = "warning"
)

// Style is the rendering hint attached to a variant. DisplayFor is how long
// the presentation layer should keep a standard toast on screen;
// SpotlightFor applies to spotlight notifications.
type Style struct {
	Icon         string        `json:"icon"`
	Accent       string        `json:"accent"`
	DisplayFor   time.Duration `json:"displayFor"`
	SpotlightFor time.Duration `json:"spotlightFor"`
}

const (
	standardDisplay  = 4800 * time.Millisecond
	spotlightDisplay = 6200 * time.Millisecond
)

var variantStyles = map[Variant]Style{
	VariantSuccess: {Icon: "check-circle", Accent: "emerald", DisplayFor: standardDisplay, SpotlightFor: spotlightDisplay},
	VariantError:   {Icon: "alert-circle", Accent: "rose", DisplayFor: standardDisplay, SpotlightFor: spotlightDisplay},
	VariantInfo:    {Icon: "info", Accent: "sky", DisplayFor: standardDisplay, SpotlightFor: spotlightDisplay},
	VariantWarning: {Icon: "alert-circle", Accent: "amber", DisplayFor: standardDisplay, SpotlightFor: spotlightDisplay},
}

// Valid reports whether v is one of the four known variants.
func (v Variant) Valid() bool {
	_, ok := variantStyles[v]
	return ok
}

// Style returns the styling entry for v. Unknown variants fall back to info.
func (v Variant) Style() Style {
	if s, ok := variantStyles[v]; ok {
		return s
	}
	return variantStyles[VariantInfo]
}

// Notification is an immutable user-facing event.
type Notification struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Variant     Variant   `json:"variant"`
	CreatedAt   time.Time `json:"createdAt"`
	Spotlight   bool      `json:"spotlight"`
}

// DisplayFor returns the presentation timeout for this notification.
func (n *Notification) DisplayFor() time.Duration {
	s := n.Variant.Style()
	if n.Spotlight {
		return s.SpotlightFor
	}
	return s.DisplayFor
}
