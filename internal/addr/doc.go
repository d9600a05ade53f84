// Package addr implements the address algebra used to name every resource
// reachable through the hub: a slash-delimited path such as "/content/news/1".
//
// Addresses come in two flavors. A concrete address is a sequence of literal
// keys or numeric indices and is safe to use as a storage path. An abstract
// address contains at least one query segment ("{?key=value}", "{:first}",
// ...) and may only be used for reads and selection, never to create
// storage. The functions in this package are pure and never touch a
// filesystem or the hub; they only reason about the text of an address.
package addr
