// Package labels maps package identifiers to human-readable source names
// and static feed categories.
package labels

import "notifeed/pkg/models"

// Entry is the resolved identity of a notification source.
type Entry struct {
	Label    string
	Category models.Category
	Priority int
}

// Fixed package tables. Priority is a static per-source digest weight;
// unlisted packages get the default of 5.
var known = map[string]Entry{
	// messaging
	"com.whatsapp":                {Label: "WhatsApp", Category: models.CategoryFriendsFamily, Priority: 8},
	"org.telegram.messenger":      {Label: "Telegram", Category: models.CategoryFriendsFamily, Priority: 8},
	"org.thoughtcrime.securesms":  {Label: "Signal", Category: models.CategoryFriendsFamily, Priority: 8},
	"com.facebook.orca":           {Label: "Messenger", Category: models.CategoryFriendsFamily, Priority: 7},
	"com.google.android.apps.messaging": {Label: "Messages", Category: models.CategoryFriendsFamily, Priority: 8},

	// work
	"com.slack":                    {Label: "Slack", Category: models.CategoryWork, Priority: 7},
	"com.microsoft.teams":          {Label: "Teams", Category: models.CategoryWork, Priority: 7},
	"com.google.android.gm":        {Label: "Gmail", Category: models.CategoryWork, Priority: 6},
	"com.microsoft.office.outlook": {Label: "Outlook", Category: models.CategoryWork, Priority: 6},
	"us.zoom.videomeetings":        {Label: "Zoom", Category: models.CategoryWork, Priority: 6},

	// projects
	"com.github.android":    {Label: "GitHub", Category: models.CategoryProjects, Priority: 6},
	"com.gitlab.app":        {Label: "GitLab", Category: models.CategoryProjects, Priority: 6},
	"com.atlassian.android.jira.core": {Label: "Jira", Category: models.CategoryProjects, Priority: 5},
	"com.todoist":           {Label: "Todoist", Category: models.CategoryProjects, Priority: 5},
	"com.linear.android":    {Label: "Linear", Category: models.CategoryProjects, Priority: 5},

	// communities
	"com.discord":         {Label: "Discord", Category: models.CategoryCommunities, Priority: 4},
	"com.reddit.frontpage": {Label: "Reddit", Category: models.CategoryCommunities, Priority: 3},
	"org.matrix.android":  {Label: "Element", Category: models.CategoryCommunities, Priority: 4},
	"com.instagram.android": {Label: "Instagram", Category: models.CategoryCommunities, Priority: 3},

	// news
	"com.twitter.android":      {Label: "X", Category: models.CategoryNews, Priority: 3},
	"com.google.android.apps.magazines": {Label: "Google News", Category: models.CategoryNews, Priority: 3},
	"flipboard.app":            {Label: "Flipboard", Category: models.CategoryNews, Priority: 3},
	"bbc.mobile.news.ww":       {Label: "BBC News", Category: models.CategoryNews, Priority: 4},

	// system
	"android":                    {Label: "System", Category: models.CategorySystem, Priority: 2},
	"com.android.systemui":      {Label: "System UI", Category: models.CategorySystem, Priority: 2},
	"com.android.settings":      {Label: "Settings", Category: models.CategorySystem, Priority: 2},
	"com.android.vending":       {Label: "Play Store", Category: models.CategorySystem, Priority: 2},
	"com.google.android.gms":    {Label: "Play Services", Category: models.CategorySystem, Priority: 1},
	"com.android.providers.downloads": {Label: "Downloads", Category: models.CategorySystem, Priority: 2},
}

// actionHints suggests a UI affordance per category.
var actionHints = map[models.Category]string{
	models.CategoryFriendsFamily: "reply",
	models.CategoryWork:          "reply",
	models.CategoryProjects:      "review",
	models.CategoryCommunities:   "open",
	models.CategoryNews:          "open",
	models.CategorySystem:        "review",
	models.CategoryOther:         "open",
}

// Resolve maps a package name to its source label, category and priority.
// Unknown packages fall back to the raw package name and CategoryOther;
// Resolve is total and never fails.
func Resolve(packageName string) Entry {
	if e, ok := known[packageName]; ok {
		return e
	}
	return Entry{Label: packageName, Category: models.CategoryOther, Priority: 5}
}

// ActionHint returns the suggested UI affordance for a category.
func ActionHint(cat models.Category) string {
	if h, ok := actionHints[cat]; ok {
		return h
	}
	return "open"
}
