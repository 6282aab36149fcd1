// Package grouping partitions the operation catalog into resource groups and
// exposes each group as one consolidated tool.
//
// A group collects the operations of one namespace that share a first path
// segment (manage_fabrics, analyze_anomalies, ...). The consolidated tool
// takes an "operation" enum naming the member to run plus a free-form
// "params" object. Generated groups are created once per namespace; custom
// groups edited by administrators are never overwritten by regeneration.
package grouping
