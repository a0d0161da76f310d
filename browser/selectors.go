package browser

import "time"

// Selectors is the table of page locators. Every entry can be overridden
// from the config file when the site markup changes.
type Selectors struct {
	HomeURL        string `yaml:"home_url"`
	CookieAccept   string `yaml:"cookie_accept"`
	EmailInput     string `yaml:"email_input"`
	PasswordInput  string `yaml:"password_input"`
	SubmitLogin    string `yaml:"submit_login"`
	FeedMarker     string `yaml:"feed_marker"`
	ConnectionsURL string `yaml:"connections_url"`
	ListingHeader  string `yaml:"listing_header"`
	LoadMore       string `yaml:"load_more"`
	LoadMoreLabel  string `yaml:"load_more_label"`
	ProfileMarker  string `yaml:"profile_marker"`
	MessageButton  string `yaml:"message_button"` // XPath
	ComposerTitle  string `yaml:"composer_title"`
	ComposerLabel  string `yaml:"composer_label"`
	Location       string `yaml:"location"`
	DisplayName    string `yaml:"display_name"`
}

// DefaultSelectors returns the locators for the current site markup.
func DefaultSelectors() Selectors {
	return Selectors{
		HomeURL:        "https://www.linkedin.com/",
		CookieAccept:   `button[data-tracking-control-name="ga-cookie.consent.accept.v4"]`,
		EmailInput:     `input[name="session_key"]`,
		PasswordInput:  `input[name="session_password"]`,
		SubmitLogin:    `button[data-id="sign-in-form__submit-btn"]`,
		FeedMarker:     "div.feed-identity-module__actor-meta.break-words",
		ConnectionsURL: "https://www.linkedin.com/mynetwork/invite-connect/connections/",
		ListingHeader:  "header.mn-connections__header",
		LoadMore:       "button.scaffold-finite-scroll__load-button",
		LoadMoreLabel:  "Afficher plus de résultats",
		ProfileMarker:  "h1.text-heading-xlarge",
		MessageButton:  "//button[contains(@aria-label, 'Envoyer un message à')]",
		ComposerTitle:  ".msg-overlay-bubble-header__title",
		ComposerLabel:  "Nouveau message",
		Location:       "div.bPIKubaCZcXXVWwCYCRGqvjSHKFvUoNzpKMthc span.text-body-small.inline.t-black--light.break-words",
		DisplayName:    ".text-heading-xlarge",
	}
}

// Merge fills every empty field of s from DefaultSelectors.
func (s Selectors) Merge() Selectors {
	d := DefaultSelectors()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&s.HomeURL, d.HomeURL)
	fill(&s.CookieAccept, d.CookieAccept)
	fill(&s.EmailInput, d.EmailInput)
	fill(&s.PasswordInput, d.PasswordInput)
	fill(&s.SubmitLogin, d.SubmitLogin)
	fill(&s.FeedMarker, d.FeedMarker)
	fill(&s.ConnectionsURL, d.ConnectionsURL)
	fill(&s.ListingHeader, d.ListingHeader)
	fill(&s.LoadMore, d.LoadMore)
	fill(&s.LoadMoreLabel, d.LoadMoreLabel)
	fill(&s.ProfileMarker, d.ProfileMarker)
	fill(&s.MessageButton, d.MessageButton)
	fill(&s.ComposerTitle, d.ComposerTitle)
	fill(&s.ComposerLabel, d.ComposerLabel)
	fill(&s.Location, d.Location)
	fill(&s.DisplayName, d.DisplayName)
	return s
}

// Timeouts bounds every wait the session performs.
type Timeouts struct {
	Navigation    time.Duration `yaml:"navigation"`     // default 30s
	Login         time.Duration `yaml:"login"`          // default 30s
	Cookie        time.Duration `yaml:"cookie"`         // default 5s
	Listing       time.Duration `yaml:"listing"`        // default 10s
	LoadMore      time.Duration `yaml:"load_more"`      // default 3s
	Profile       time.Duration `yaml:"profile"`        // default 10s
	MessageButton time.Duration `yaml:"message_button"` // default 15s
	Composer      time.Duration `yaml:"composer"`       // default 5s
	Field         time.Duration `yaml:"field"`          // default 5s
}

func (t *Timeouts) defaults() {
	set := func(d *time.Duration, def time.Duration) {
		if *d <= 0 {
			*d = def
		}
	}
	set(&t.Navigation, 30*time.Second)
	set(&t.Login, 30*time.Second)
	set(&t.Cookie, 5*time.Second)
	set(&t.Listing, 10*time.Second)
	set(&t.LoadMore, 3*time.Second)
	set(&t.Profile, 10*time.Second)
	set(&t.MessageButton, 15*time.Second)
	set(&t.Composer, 5*time.Second)
	set(&t.Field, 5*time.Second)
}
