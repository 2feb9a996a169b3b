package retrieve

import (
	"net/url"
	"strings"

	"github.com/ppiankov/veracity/internal/model"
)

// AuthorityClassifier assigns a domain-based authority tier to evidence
// sources. The tier is advisory: it is surfaced to the evaluator as a
// hint and carried into the source graph, but the model's credibility
// score remains the one that enters the aggregate.
type AuthorityClassifier struct {
	primary   map[string]bool
	secondary map[string]bool
}

var defaultPrimaryDomains = []string{
	"eurostat.ec.europa.eu",
	"oecd.org",
	"who.int",
	"un.org",
	"worldbank.org",
	"imf.org",
	"nature.com",
	"science.org",
	"pubmed.ncbi.nlm.nih.gov",
	"arxiv.org",
}

var defaultSecondaryDomains = []string{
	"wikipedia.org",
	"britannica.com",
	"reuters.com",
	"apnews.com",
	"bbc.com",
	"bbc.co.uk",
	"nytimes.com",
	"theguardian.com",
	"economist.com",
	"nzz.ch",
	"srf.ch",
	"factcheck.org",
	"politifact.com",
	"snopes.com",
}

// NewAuthorityClassifier creates a classifier with the built-in domain sets.
func NewAuthorityClassifier() *AuthorityClassifier {
	c := &AuthorityClassifier{
		primary:   make(map[string]bool),
		secondary: make(map[string]bool),
	}
	for _, d := range defaultPrimaryDomains {
		c.primary[d] = true
	}
	for _, d := range defaultSecondaryDomains {
		c.secondary[d] = true
	}
	return c
}

// Classify classifies a URL into an authority tier.
func (a *AuthorityClassifier) Classify(rawURL string) model.AuthorityTier {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return model.TierTertiary
	}

	host := parsed.Host
	if idx := strings.Index(host, ":"); idx > 0 {
		host = host[:idx]
	}

	if matchDomain(a.primary, host) {
		return model.TierPrimary
	}
	if matchDomain(a.secondary, host) {
		return model.TierSecondary
	}

	// Government and academic TLDs count as primary sources
	if strings.HasSuffix(host, ".gov") || strings.HasSuffix(host, ".edu") ||
		strings.HasSuffix(host, ".ac.uk") || strings.Contains(host, ".gov.") {
		return model.TierPrimary
	}

	return model.TierTertiary
}

// matchDomain checks host against a domain set, including subdomains.
func matchDomain(set map[string]bool, host string) bool {
	if set[host] {
		return true
	}
	for domain := range set {
		if strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
