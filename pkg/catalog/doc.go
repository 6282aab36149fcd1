// Package catalog turns OpenAPI documents into normalized Operation records.
//
// Each document belongs to a Namespace (manage, analyze, infra, onemanage).
// Documents are validated all-or-nothing per namespace: a malformed document
// is rejected wholesale with a CatalogError while other namespaces keep
// loading.
//
//	cat := catalog.New(catalog.DefaultNamespaces(), "specs", logger)
//	report := cat.LoadAll(ctx)
//	op, ok := cat.Lookup("manage", "getFabrics")
//
// Operations are immutable once loaded; Reload swaps a namespace atomically.
package catalog
