package banner

import (
	"github.com/charmbracelet/lipgloss"

	"sparqlbench/internal/tui/styles"
)

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	ascii := `
                                 __   __                    __  
   _________  ____ __________ _/ /  / /_  ___  ____  _____/ /_ 
  / ___/ __ \/ __ '/ ___/ __ '/ /  / __ \/ _ \/ __ \/ ___/ __ \
 (__  ) /_/ / /_/ / /  / /_/ / /  / /_/ /  __/ / / / /__/ / / /
/____/ .___/\__,_/_/   \__, /_/  /_.___/\___/_/ /_/\___/_/ /_/ 
    /_/                  /_/                                   `

	return "\n" + style.Render(ascii) + "\n"
}
