package market

import "slices"

var Categories = []string{
	"Electronics",
	"Fashion",
	"Fitness",
	"Home",
	"Books",
	"Toys",
	"Sports",
	"Music",
	"Vehicles",
	"Others",
}

func IsCategory(c string) bool {
	return slices.Contains(Categories, c)
}
