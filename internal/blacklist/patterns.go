package blacklist

import "regexp"

// localPartPatterns match the local-part of system/transactional
// addresses. All case-insensitive, matched against the local part only.
var localPartPatterns = compileAll([]string{
	`no[._-]?reply`,
	`do[._-]?not[._-]?reply`,
	`mailer[._-]?daemon`,
	`postmaster`,
	`bounces?`,
	`auto[._-]?reply`,
	`automated`,
	`notifications?`,
	`notify`,
	`alerts?`,
	`news(letter)?`,
	`marketing`,
	`promo(tion)?s?`,
	`campaigns?`,
	`support`,
	`info`,
	`sales`,
	`hello`,
	`contact`,
	`team`,
	`feedback`,
	`billing`,
	`subscriptions?`,
	`updates?`,
	`service`,
	`help`,
	`admin`,
	`webmaster`,
})

// fullAddressPatterns match marketing subdomains and the .edu catch-all
// against the whole lowercased address.
var fullAddressPatterns = compileAll([]string{
	`@email\.`,
	`@e\.`,
	`@t\.`,
	`@m\.`,
	`@mail\.`,
	`@news\.`,
	`@notify\.`,
	`@alerts?\.`,
	`@promo\.`,
	`@offers?\.`,
	`@campaign\.`,
	`@action\.`,
	`@messages?\.`,
	`\.edu$`,
})

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

// personalDomains seeds the "personal" category: free-mail providers
// that are never a company relationship but are not transactional
// system addresses either.
var personalDomains = []string{
	"gmail.com",
	"googlemail.com",
	"outlook.com",
	"hotmail.com",
	"live.com",
	"yahoo.com",
	"icloud.com",
	"me.com",
	"aol.com",
	"protonmail.com",
	"proton.me",
	"gmx.com",
	"zoho.com",
	"mail.com",
}
