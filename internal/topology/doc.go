// Package topology loads CUE deployment manifests and deploys them on an engine.
package topology
