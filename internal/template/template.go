// Package template renders outreach email bodies by substituting a fixed set
// of bracketed placeholders such as [company name].
package template

import "github.com/foxzi/outreach/internal/geo"

// Placeholder is the lower-case name written between brackets in a template
type Placeholder string

// Recognized placeholders
const (
	CompanyName Placeholder = "company name"
	CompanyInfo Placeholder = "company info"
	ContactName Placeholder = "contact name"
	Website     Placeholder = "website"
	Industry    Placeholder = "industry"
	Location    Placeholder = "location"
)

// Placeholders lists every recognized placeholder in display order
var Placeholders = []Placeholder{CompanyName, CompanyInfo, ContactName, Website, Industry, Location}

// Token returns the bracketed form, e.g. "[company name]"
func (p Placeholder) Token() string {
	return "[" + string(p) + "]"
}

// VariableInfo documents a placeholder
type VariableInfo struct {
	Name        Placeholder `json:"name"`
	Token       string      `json:"token"`
	Description string      `json:"description"`
	Example     string      `json:"example,omitempty"`
}

// Catalog describes the recognized placeholders
func Catalog() []VariableInfo {
	return []VariableInfo{
		{Name: CompanyName, Token: CompanyName.Token(), Description: "Recipient company name", Example: "Example Corp"},
		{Name: CompanyInfo, Token: CompanyInfo.Token(), Description: "Short description of the recipient company", Example: "A leading software company specializing in innovative solutions"},
		{Name: ContactName, Token: ContactName.Token(), Description: "Recipient contact person", Example: "John Smith"},
		{Name: Website, Token: Website.Token(), Description: "Recipient company website", Example: "https://example-corp.com"},
		{Name: Industry, Token: Industry.Token(), Description: "Campaign target industry"},
		{Name: Location, Token: Location.Token(), Description: "Campaign target city and country", Example: "London, United Kingdom"},
	}
}

// Values holds the substitution values for one recipient
type Values struct {
	CompanyName string `json:"company_name"`
	CompanyInfo string `json:"company_info"`
	ContactName string `json:"contact_name"`
	Website     string `json:"website"`
	Industry    string `json:"industry"`
	Location    string `json:"location"`
}

// Map converts the values to the placeholder map Render expects.
// Every placeholder is present, empty values included.
func (v Values) Map() map[Placeholder]string {
	return map[Placeholder]string{
		CompanyName: v.CompanyName,
		CompanyInfo: v.CompanyInfo,
		ContactName: v.ContactName,
		Website:     v.Website,
		Industry:    v.Industry,
		Location:    v.Location,
	}
}

// LocationFor builds the [location] value, "<city>, <country name>".
// Unknown country codes are used verbatim.
func LocationFor(city, country string) string {
	return city + ", " + geo.NameFor(country)
}
