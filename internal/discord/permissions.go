package discord

import "github.com/bwmarrin/discordgo"

const voicePermissions = discordgo.PermissionVoiceConnect | discordgo.PermissionVoiceSpeak

// canUseVoice reports whether the bot may connect and speak in channelID.
// Unknown permissions (channel not cached yet) are treated as allowed and
// left for Discord to reject.
func canUseVoice(state *discordgo.State, botID, channelID string) bool {
	perms, err := state.UserChannelPermissions(botID, channelID)
	if err != nil {
		return true
	}
	if perms&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return perms&voicePermissions == voicePermissions
}
