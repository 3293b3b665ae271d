//go:build !race

package auth

func passwordHashCostCeiling() int {
	return maxBcryptCost
}
