// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat is the terminal front-end of a polaris conversation.

Model is a Bubble Tea model wrapping a session.Session. It owns nothing but
presentation: key handling, layout and markdown rendering. Every result
message the engine issues is handed back to Session.Update.

# Layout

	header      chat title, project, engine phase
	viewport    the timeline; assistant replies rendered with glamour
	picker      referenced-chat picker, when open
	chips       referenced chats and queued attachments
	input       compose box
	status      latest notice and shortcuts

# Commands

Lines starting with "/" are handled locally instead of being sent:

	/attach <path>...   queue files (images by content type, else documents)
	/detach <n>         remove the n-th queued attachment
	/unref <n>          remove the n-th reference chip
	/rename <title>     rename the chat
	/export [md|json]   save the transcript to the export directory
*/
package chat
