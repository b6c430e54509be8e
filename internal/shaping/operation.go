package shaping

import "fmt"

// Operation is one adapter call the API exposes. The set is closed: handlers
// pick a constant, they never name a method at runtime.
type Operation int

const (
	HentaiHavenSearch Operation = iota + 1
	HentaiHavenInfo
	HentaiHavenSources
	HanimeSearch
	HanimeRecent
	HanimeVideo
	HanimeStreams
	Rule34Search
	Rule34Autocomplete
	Rule34Info
)

// Namespaces group operations per upstream site; cache purges work per namespace.
const (
	NamespaceHentaiHaven = "HentaiHaven"
	NamespaceHanime      = "Hanime"
	NamespaceRule34      = "Rule34"
)

type operationName struct {
	namespace string
	method    string
}

var operationNames = map[Operation]operationName{
	HentaiHavenSearch:  {NamespaceHentaiHaven, "fetchSearchResult"},
	HentaiHavenInfo:    {NamespaceHentaiHaven, "fetchInfo"},
	HentaiHavenSources: {NamespaceHentaiHaven, "fetchSources"},
	HanimeSearch:       {NamespaceHanime, "search"},
	HanimeRecent:       {NamespaceHanime, "getRecent"},
	HanimeVideo:        {NamespaceHanime, "getInfo"},
	HanimeStreams:      {NamespaceHanime, "getEpisode"},
	Rule34Search:       {NamespaceRule34, "fetchSearchResult"},
	Rule34Autocomplete: {NamespaceRule34, "fetchSearchAutocomplete"},
	Rule34Info:         {NamespaceRule34, "fetchInfo"},
}

// Namespace is the site part of cache and rate keys.
func (o Operation) Namespace() string {
	return operationNames[o].namespace
}

// Method is the operation part of cache and rate keys.
func (o Operation) Method() string {
	return operationNames[o].method
}

// Valid reports whether o is one of the declared operations.
func (o Operation) Valid() bool {
	_, ok := operationNames[o]
	return ok
}

func (o Operation) String() string {
	if !o.Valid() {
		return fmt.Sprintf("Operation(%d)", int(o))
	}
	return o.Namespace() + "." + o.Method()
}

// Namespaces lists every namespace, for validating purge requests.
func Namespaces() []string {
	return []string{NamespaceHentaiHaven, NamespaceHanime, NamespaceRule34}
}
