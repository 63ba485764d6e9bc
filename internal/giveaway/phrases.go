package giveaway

import (
	"fmt"
	"math/rand/v2"
)

var flavorTexts = []string{
	"Dragged out of an anomaly field. Still warm.",
	"Traded off a loner at the checkpoint, no questions asked.",
	"Found in a stash behind the old railway bridge.",
	"The quartermaster swears it fell off a truck.",
	"Recovered from a collapsed bunker. Mostly intact.",
	"Someone's last will and testament. Allegedly.",
	"Smuggled past the perimeter in a soup can.",
	"Freshly looted. The previous owner will not need it.",
}

// Each phrase takes the winner mentions once.
var winnerPhrases = []string{
	"Decent haul, %s. The Zone is kind to you today.",
	"Lucky devil, %s. With that kind of luck you belong on the big raid.",
	"The Zone picked you, %s. Grab it before anyone changes their mind.",
	"Looks like the cards fell your way, %s. Take what is yours.",
	"%s, luck walked next to you today. Keep the trophy, you earned it.",
}

func pickFlavor() string { return flavorTexts[rand.IntN(len(flavorTexts))] }

// WinnerLine renders a random announcement line around mentions.
func WinnerLine(mentions string) string {
	return fmt.Sprintf(winnerPhrases[rand.IntN(len(winnerPhrases))], mentions)
}
