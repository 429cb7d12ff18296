package pid

import (
	"sort"

	"github.com/JiscSD/rdss-metadata-catalog/catalog"
)

type dataciteName struct {
	Name     string `json:"name"`
	NameType string `json:"nameType"`
}

type dataciteTitle struct {
	Title string `json:"title"`
	Lang  string `json:"lang,omitempty"`
}

type dataciteDescription struct {
	Description     string `json:"description"`
	DescriptionType string `json:"descriptionType"`
	Lang            string `json:"lang,omitempty"`
}

type dataciteAttributes struct {
	Event           string                `json:"event,omitempty"`
	URL             string                `json:"url"`
	Creators        []dataciteName        `json:"creators"`
	Titles          []dataciteTitle       `json:"titles"`
	Publisher       string                `json:"publisher,omitempty"`
	PublicationYear int                   `json:"publicationYear,omitempty"`
	Subjects        []map[string]string   `json:"subjects,omitempty"`
	Descriptions    []dataciteDescription `json:"descriptions,omitempty"`
	Language        string                `json:"language,omitempty"`
	Types           map[string]string     `json:"types"`
}

type dataciteData struct {
	Type       string             `json:"type"`
	Attributes dataciteAttributes `json:"attributes"`
}

type datacitePayload struct {
	Data dataciteData `json:"data"`
}

// dataciteEnvelope maps the dataset onto the DataCite JSON:API document
// accepted by the PID service.
func dataciteEnvelope(d *catalog.Dataset, landingPage, event string) *datacitePayload {
	attrs := dataciteAttributes{
		Event: event,
		URL:   landingPage,
		Types: map[string]string{"resourceTypeGeneral": "Dataset"},
	}
	for _, lang := range sortedKeys(d.Title) {
		attrs.Titles = append(attrs.Titles, dataciteTitle{Title: d.Title[lang], Lang: lang})
	}
	for _, lang := range sortedKeys(d.Description) {
		attrs.Descriptions = append(attrs.Descriptions, dataciteDescription{
			Description:     d.Description[lang],
			DescriptionType: "Abstract",
			Lang:            lang,
		})
	}
	for _, a := range d.Actors {
		name, nameType := actorName(a)
		if name == "" {
			continue
		}
		if a.HasRole(catalog.RoleCreator) {
			attrs.Creators = append(attrs.Creators, dataciteName{Name: name, NameType: nameType})
		}
		if a.HasRole(catalog.RolePublisher) && attrs.Publisher == "" {
			attrs.Publisher = name
		}
	}
	for _, kw := range d.Keyword {
		attrs.Subjects = append(attrs.Subjects, map[string]string{"subject": kw})
	}
	if len(d.Language) > 0 {
		attrs.Language = d.Language[0]
	}
	if d.Issued != nil {
		attrs.PublicationYear = d.Issued.Year()
	}
	return &datacitePayload{Data: dataciteData{Type: "dois", Attributes: attrs}}
}

func actorName(a catalog.Actor) (string, string) {
	if a.Person != nil && a.Person.Name != "" {
		return a.Person.Name, "Personal"
	}
	if a.Organization != nil {
		for _, lang := range []string{"en", "fi", "sv"} {
			if label := a.Organization.PrefLabel[lang]; label != "" {
				return label, "Organizational"
			}
		}
		for _, lang := range sortedKeys(a.Organization.PrefLabel) {
			return a.Organization.PrefLabel[lang], "Organizational"
		}
	}
	return "", ""
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
