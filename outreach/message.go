package outreach

import (
	"strings"

	"github.com/hazyhaar/reachout/classifier"
)

// Message is an ordered list of lines. Each line is typed as one batch
// followed by two line breaks; the whole message is submitted once.
type Message []string

// French returns the French template addressed to firstName.
func French(firstName string) Message {
	return Message{
		"Bonjour " + firstName + " ! Je suis développeur avec plusieurs projets à mon actif.",
		"Je vous contacte parce que je cherche à développer mon réseau mais aussi parce que je suis à la recherche d’un CDI",
		"Si vous avez une opportunité à me présenter, je serais ravi d'en discuter.",
		"À très vite !",
		"Hugo",
	}
}

// English returns the English template addressed to firstName.
func English(firstName string) Message {
	return Message{
		"Hello " + firstName + " ! I'm a developer with several projects under my belt.",
		"I'm reaching out to you because I'm looking to expand my professional network and I'm also on the hunt for a new fulltime opportunity.",
		"If you have any projects or roles that you think would be a good fit for me, I'd love to discuss them further.",
		"Talk to you soon !",
		"Hugo",
	}
}

// Select picks the template for tag. Anything but French gets English.
func Select(tag classifier.Tag, firstName string) Message {
	if tag == classifier.French {
		return French(firstName)
	}
	return English(firstName)
}

// FirstName is the first whitespace-separated word of a display name.
func FirstName(displayName string) string {
	f := strings.Fields(displayName)
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

// Profile is what the orchestrator reads from an opened profile page.
type Profile struct {
	DisplayName string
	FirstName   string
	Location    string
}
