package models

// ErrorKind classifies why a page could not be produced
type ErrorKind string

const (
	ErrorKindUnset   ErrorKind = ""        // Zero value = no failure
	ErrorKindNetwork ErrorKind = "network" // Connection refused, host not found
	ErrorKindTimeout ErrorKind = "timeout" // Attempt exceeded its deadline
	ErrorKindHTTP    ErrorKind = "http"    // Non-2xx response, status is always present
	ErrorKindContent ErrorKind = "content" // Content selector matched nothing
	ErrorKindParsing ErrorKind = "parsing" // Everything else (bad URL, HTML, conversion)
)

// String implements fmt.Stringer for logging
func (k ErrorKind) String() string {
	if k == "" {
		return "unset"
	}
	return string(k)
}

// IsValid returns true if the kind is one of the failure kinds
func (k ErrorKind) IsValid() bool {
	switch k {
	case ErrorKindNetwork, ErrorKindTimeout, ErrorKindHTTP, ErrorKindContent, ErrorKindParsing:
		return true
	}
	return false
}

// AllErrorKinds lists the failure kinds in display order
func AllErrorKinds() []ErrorKind {
	return []ErrorKind{ErrorKindNetwork, ErrorKindTimeout, ErrorKindHTTP, ErrorKindContent, ErrorKindParsing}
}

// Complexity is the size class of a documentation site
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// String implements fmt.Stringer for logging
func (c Complexity) String() string {
	if c == "" {
		return "unset"
	}
	return string(c)
}

// IsValid returns true if the complexity is a known value
func (c Complexity) IsValid() bool {
	switch c {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex:
		return true
	}
	return false
}

// Profile names a pipeline configuration bundle
type Profile string

const (
	ProfileBasic        Profile = "basic"
	ProfileConfigurable Profile = "configurable"
	ProfilePerformance  Profile = "performance"
	ProfileFormat       Profile = "format"
)

// String implements fmt.Stringer for logging
func (p Profile) String() string {
	if p == "" {
		return "unset"
	}
	return string(p)
}

// IsValid returns true if the profile is a known value
func (p Profile) IsValid() bool {
	switch p {
	case ProfileBasic, ProfileConfigurable, ProfilePerformance, ProfileFormat:
		return true
	}
	return false
}

// AllProfiles lists profiles in tie-break order (earlier wins a tie)
func AllProfiles() []Profile {
	return []Profile{ProfileBasic, ProfileConfigurable, ProfilePerformance, ProfileFormat}
}

// ParseProfile converts user input to a Profile
func ParseProfile(s string) (Profile, bool) {
	p := Profile(s)
	return p, p.IsValid()
}
