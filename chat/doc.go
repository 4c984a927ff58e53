// Package chat connects the contest to Twitch chat.
//
// It provides three pieces:
//   - Gateway: the outbound side. Send posts text to a channel through the IRC
//     client, splitting it into messages IRC accepts. ResolveNames maps user
//     ids to display names from an LRU cache filled by ingestion, asking Helix
//     for the misses.
//   - Bot: connects to Twitch IRC, records every non-command message into the
//     activity store, and hands commands to Commands.
//   - Commands: the operator surface (who, reset, top, settime, settop).
//
// A chat is a Twitch channel identified by its lowercase login.
package chat
