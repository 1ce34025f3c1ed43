// Package risk turns impact sub-scores into a risk score, a risk level and
// the controls a tenant's matrix requires for that level.
//
// Scores are combined with decimal arithmetic so that a score landing exactly
// on a threshold always resolves to the higher level.
package risk
