package news

import "strings"

// ArticleURL builds the canonical article URL from the site origin and a
// post slug. An empty slug yields the bare origin.
func ArticleURL(siteURL, slug string) string {
	siteURL = strings.TrimSuffix(siteURL, "/")
	if slug == "" {
		return siteURL
	}
	return siteURL + "/article/" + slug
}
