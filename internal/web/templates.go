package web

// InputOpts configures a labeled text/password input on the login form
// templ component.
type InputOpts struct {
	Name         string
	Placeholder  string
	Type         string
	Autocomplete string
}

func tplInputOpts(name, placeholder, type_, autocomplete string) InputOpts {
	if type_ != "password" && type_ != "text" {
		panic("InputOpts type must be either `password` or `text`")
	}

	return InputOpts{
		name,
		placeholder,
		type_,
		autocomplete,
	}
}

const NavbarItemBaseClass = "px-2 py-1 "

// tplKindBadgeClass picks the directory-listing row badge class for a
// hub-data-API typeof string (internal/hubapi.TypeOf), mirroring the
// teacher's tplNavbarActive "compute a CSS class from a small closed set
// of string values" idiom.
func tplKindBadgeClass(typeOf string) string {
	switch typeOf {
	case "directory":
		return NavbarItemBaseClass + "text-blue-300"
	case "file-code":
		return NavbarItemBaseClass + "text-green-300"
	default:
		return NavbarItemBaseClass + "text-gray-300"
	}
}
