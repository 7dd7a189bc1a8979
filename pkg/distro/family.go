// Package distro identifies the operating system of a remote host and maps
// distribution names onto command-dialect families.
package distro

import "strings"

// Family groups distributions sharing one command dialect.
type Family string

const (
	FamilyUnknown Family = ""
	FamilyDebian  Family = "debian"
	FamilyRedHat  Family = "redhat"
	FamilySUSE    Family = "suse"
	FamilyAIX     Family = "aix"
	FamilyHPUX    Family = "hpux"
	FamilySolaris Family = "solaris"
	FamilyWindows Family = "windows"
)

// Families lists every known family in a stable order.
func Families() []Family {
	return []Family{FamilyDebian, FamilyRedHat, FamilySUSE, FamilyAIX, FamilyHPUX, FamilySolaris, FamilyWindows}
}

// ParseFamily converts a family id (as typed on the command line) to a Family.
func ParseFamily(s string) (Family, bool) {
	want := Family(strings.ToLower(strings.TrimSpace(s)))
	for _, f := range Families() {
		if f == want {
			return f, true
		}
	}
	return FamilyUnknown, false
}

type alias struct {
	needle string
	family Family
}

// aliases is checked in order; more specific needles come first so that
// "opensuse" is not swallowed by a shorter match and "Oracle Solaris" is
// not taken for Oracle Linux.
var aliases = []alias{
	{"raspbian", FamilyDebian},
	{"ubuntu", FamilyDebian},
	{"debian", FamilyDebian},
	{"linuxmint", FamilyDebian},
	{"mint", FamilyDebian},
	{"kali", FamilyDebian},

	{"opensuse", FamilySUSE},
	{"suse", FamilySUSE},
	{"sles", FamilySUSE},
	{"sled", FamilySUSE},

	{"aix", FamilyAIX},
	{"hp-ux", FamilyHPUX},
	{"hpux", FamilyHPUX},
	{"sunos", FamilySolaris},
	{"solaris", FamilySolaris},

	{"red hat", FamilyRedHat},
	{"redhat", FamilyRedHat},
	{"rhel", FamilyRedHat},
	{"centos", FamilyRedHat},
	{"fedora", FamilyRedHat},
	{"oracle", FamilyRedHat},
	{"ol", FamilyRedHat},
	{"amazon", FamilyRedHat},
	{"amzn", FamilyRedHat},
	{"rocky", FamilyRedHat},
	{"almalinux", FamilyRedHat},
	{"alma", FamilyRedHat},
	{"scientific", FamilyRedHat},

	{"windows", FamilyWindows},
}

// FamilyOf maps a distribution name or id to its family by alias matching.
// Short ids ("ol", "sles") only match whole words; longer names match as
// substrings. Unknown names return false and never an error.
func FamilyOf(name string) (Family, bool) {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return FamilyUnknown, false
	}

	words := strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == '_' || r == '"' || r == ',' || r == '/'
	})

	for _, a := range aliases {
		if len(a.needle) <= 4 {
			for _, w := range words {
				if w == a.needle {
					return a.family, true
				}
			}
			continue
		}
		if strings.Contains(lower, a.needle) {
			return a.family, true
		}
	}
	return FamilyUnknown, false
}
