package visitors

import "hash/fnv"

var aliasAdjectives = []string{
	"Amber", "Brisk", "Calm", "Dapper", "Eager", "Fabled", "Gentle", "Hazy", "Idle", "Jolly",
	"Keen", "Lucid", "Mellow", "Nimble", "Olive", "Plucky", "Quiet", "Rustic", "Sunny", "Tidy",
	"Upbeat", "Vivid", "Witty", "Young", "Zesty", "Bold", "Clever", "Dusky", "Frosty", "Golden",
}

var aliasNouns = []string{
	"Badger", "Comet", "Dune", "Ember", "Fern", "Glacier", "Harbor", "Island", "Juniper", "Kestrel",
	"Lantern", "Meadow", "Nebula", "Orchard", "Pebble", "Quartz", "River", "Sparrow", "Thistle", "Umber",
	"Valley", "Willow", "Yarrow", "Zephyr", "Canyon", "Heron", "Maple", "Otter", "Prairie", "Summit",
}

// Alias returns a stable display name for a hashed identity so admin views
// can tell commenters apart without exposing the network address.
func Alias(hash string) string {
	if hash == "" {
		return "Anonymous"
	}

	h := fnv.New32a()
	h.Write([]byte(hash))
	index := int(h.Sum32())

	adj := aliasAdjectives[index%len(aliasAdjectives)]
	noun := aliasNouns[(index/len(aliasAdjectives))%len(aliasNouns)]
	return adj + " " + noun
}
