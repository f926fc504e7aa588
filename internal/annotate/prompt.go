package annotate

import (
	"fmt"
	"strings"
	"time"

	"github.com/micproject/newsetl/internal/database"
)

// maxCharsPerArticle caps each article's contribution to a batch prompt.
const maxCharsPerArticle = 18000

var eligibleCountries = []string{
	"United States of America", "Canada", "Bahamas", "Cuba", "Haiti",
	"Dominican Republic", "Jamaica", "Trinidad and Tobago", "Barbados",
	"Dominica", "Grenada", "St. Lucia", "St. Vincent and the Grenadines",
	"Antigua & Barbuda", "St. Kitts and Nevis", "Mexico", "Belize",
	"Guatemala", "Honduras", "El Salvador", "Nicaragua", "Costa Rica",
	"Panama", "Colombia", "Venezuela", "Guyana", "Suriname", "Ecuador",
	"Peru", "Brazil", "Bolivia", "Paraguay", "Chile", "Argentina",
	"Uruguay", "United Kingdom", "Ireland", "Netherlands", "Belgium",
	"Luxembourg", "France", "Monaco", "Liechtenstein", "Switzerland",
	"Spain", "Andorra", "Portugal", "Germany", "Poland", "Austria",
	"Hungary", "Czech Republic", "Slovakia", "Italy", "San Marino",
	"Malta", "Albania", "Montenegro", "Macedonia", "Croatia", "Yugoslavia",
	"Bosnia and Herzegovina", "Kosovo", "Slovenia", "Greece", "Cyprus",
	"Bulgaria", "Moldova", "Romania", "Russia", "Estonia", "Latvia",
	"Lithuania", "Ukraine", "Belarus", "Armenia", "Georgia", "Azerbaijan",
	"Finland", "Sweden", "Norway", "Denmark", "Iceland", "Cape Verde",
	"Sao Tome and Principe", "Guinea-Bissau", "Equatorial Guinea",
	"Gambia", "Mali", "Senegal", "Benin", "Mauritania", "Niger",
	"Ivory Coast", "Guinea", "Burkina Faso", "Liberia", "Sierra Leone",
	"Ghana", "Togo", "Cameroon", "Nigeria", "Gabon",
	"Central African Republic", "Chad", "Congo",
	"Democratic Republic of the Congo", "Uganda", "Kenya", "Tanzania",
	"Burundi", "Rwanda", "Somalia", "Djibouti", "Ethiopia", "Eritrea",
	"Angola", "Mozambique", "Zambia", "Zimbabwe", "Malawi", "South Africa",
	"Namibia", "Lesotho", "Botswana", "Swaziland", "Madagascar", "Comoros",
	"Mauritius", "Seychelles", "Morocco", "Algeria", "Tunisia", "Libya",
	"Sudan", "South Sudan", "Iran", "Turkey", "Iraq", "Egypt", "Syria",
	"Lebanon", "Jordan", "Israel", "Saudi Arabia", "Yemen", "Kuwait",
	"Bahrain", "Qatar", "United Arab Emirates", "Oman", "Afghanistan",
	"Turkmenistan", "Tajikistan", "Kyrgyzstan", "Uzbekistan", "Kazakhstan",
	"China", "Mongolia", "Taiwan", "North Korea", "South Korea", "Japan",
	"India", "Bhutan", "Pakistan", "Bangladesh", "Myanmar", "Sri Lanka",
	"Maldives", "Nepal", "Thailand", "Cambodia", "Laos", "Vietnam",
	"Malaysia", "Singapore", "Brunei", "Philippines", "Indonesia",
	"East Timor", "Australia", "Papua New Guinea", "New Zealand",
	"Vanuatu", "Solomon Islands", "Kiribati", "Tuvalu", "Fiji", "Tonga",
	"Nauru", "Marshall Islands", "Palau", "Federated States of Micronesia",
	"Samoa",
}

// BuildPrompt assembles the batch extraction prompt: fixed instructions,
// one context block per article, and the response format requirements.
func BuildPrompt(articles []database.Article) string {
	var b strings.Builder
	n := len(articles)

	fmt.Fprintf(&b, `Analyze the following batch of %d news articles to identify all distinct Militarized Interstate Confrontation (MIC) events involving fatalities for each article independently.

Respond ONLY with a single, valid JSON array with EXACTLY %d elements, one per input article, in the same order the articles appear. Each element MUST itself be a JSON array: it contains one object per distinct MIC event found in that article, or exactly one explanation object if no relevant events were found.

Every object MUST include these properties in this order: article_id, is_relevant, start_year, start_month, start_day, end_year, end_month, end_day, fatalities_min, fatalities_max, countries_suffering_losses, countries_causing_losses, explanation.

MIC Definition (strict): a relevant event occurs when the military forces of one internationally recognized state directly cause the death of one or more military personnel belonging to another internationally recognized state.

Rules:
- Focus ONLY on deaths of military personnel; ignore civilian deaths.
- Exclude incidents whose fatalities are identified only as police, border guards or other non-military personnel.
- Both states must come from the eligible country list below; use the exact spelling given there.
- Date components are integers; use -9 for any component that cannot be determined. Infer relative dates from the article's publication date.
- fatalities_min and fatalities_max are integers; use 0 only when fatalities are confirmed but the number is unknown. fatalities_max must be >= fatalities_min.
- For an explanation object set is_relevant to false, every date and fatality field to null, both country arrays to [], and explain in the explanation field why no event qualified.
- Create a separate object for each distinct incident, including events mentioned as background or historical context.

Eligible countries: %s

--- START OF ARTICLE BATCH (%d Articles) ---
`, n, n, strings.Join(eligibleCountries, ", "), n)

	for i, article := range articles {
		writeArticleSection(&b, i, article)
	}

	fmt.Fprintf(&b, `
--- END OF ARTICLE BATCH ---

Return the single outer JSON array with exactly %d elements now. No prose, no markdown fences, JSON only.
`, n)

	return b.String()
}

func writeArticleSection(b *strings.Builder, index int, article database.Article) {
	text := article.FullText.String
	if len(text) > maxCharsPerArticle {
		text = text[:maxCharsPerArticle] + " [TEXT TRUNCATED]"
	}

	fmt.Fprintf(b, `
--- ARTICLE START (Index: %d, ID: %d) ---
Input Article Context:
*   Article ID: %d
*   Publication Date: %s
*   %s
*   %s
*   %s

Full Article Text:
--- START TEXT %d ---
%s
--- END TEXT %d ---
--- ARTICLE END (Index: %d, ID: %d) ---
`,
		index, article.ID,
		article.ID,
		formatPublicationDate(article.PublicationDate.String),
		contextLine("Location Context", article.Location.String),
		contextLine("Subject Context", article.Subject.String),
		contextLine("People Context", article.People.String),
		article.ID, text, article.ID,
		index, article.ID)
}

// formatPublicationDate renders the stored date as a full weekday date so
// the model can resolve relative references like "on Sunday". Unparseable
// values pass through untouched.
func formatPublicationDate(raw string) string {
	if raw == "" {
		return "N/A"
	}
	for _, layout := range []string{"Jan 2, 2006", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("Monday, January 2, 2006")
		}
	}
	return raw
}

func contextLine(label, value string) string {
	if value == "" {
		return label + ": Not Available"
	}
	return label + ": " + value
}
