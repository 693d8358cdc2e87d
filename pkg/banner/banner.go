package banner

import (
	"fmt"

	"reportdb/pkg/config"
)

const banner = `
██████╗ ███████╗██████╗  ██████╗ ██████╗ ████████╗    ██████╗ ██████╗
██╔══██╗██╔════╝██╔══██╗██╔═══██╗██╔══██╗╚══██╔══╝    ██╔══██╗██╔══██╗
██████╔╝█████╗  ██████╔╝██║   ██║██████╔╝   ██║       ██║  ██║██████╔╝
██╔══██╗██╔══╝  ██╔═══╝ ██║   ██║██╔══██╗   ██║       ██║  ██║██╔══██╗
██║  ██║███████╗██║     ╚██████╔╝██║  ██║   ██║       ██████╔╝██████╔╝
╚═╝  ╚═╝╚══════╝╚═╝      ╚═════╝ ╚═╝  ╚═╝   ╚═╝       ╚═════╝ ╚═════╝
`

// Print writes the startup banner with the effective runtime info.
func Print(eff config.EffectiveConfigResult, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", eff.Addr)
	fmt.Printf("DB Path:  %s\n", eff.DBPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if eff.Source != "" {
		fmt.Printf("Config sources: %s\n", eff.Source)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("GET    /v1/reports/{id}/actions - Mirrored action log")
	fmt.Println("GET    /v1/reports/{id}/deleted-count?after=<n> - Deleted comments after n")
	fmt.Println("GET    /v1/reports/{id}/last-message - Last visible message preview")
	fmt.Println("GET    /v1/reports/{id}/last-action - Last visible action")
	fmt.Println("POST   /v1/reports/{id}/actions/{seq}/message - Optimistic message update")
	fmt.Println("DELETE /v1/reports/{id}/actions/{seq}?pending=<state> - Revert optimistic action")
	if eff.Config != nil && eff.Config.Retention.Enabled {
		fmt.Printf("\nRetention: enabled (cron=%s)\n", eff.Config.Retention.Cron)
	} else {
		fmt.Println("\nRetention: disabled")
	}
	fmt.Println("\n== Logs =======================================================")
}
