// Package prediction estimates the probability that a booking is cancelled
// before it is fulfilled. Predictions feed the platform side of the
// allocation score: lower risk scores higher.
package prediction
