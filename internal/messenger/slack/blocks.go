package slack

import (
	"fmt"

	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/taskbot/internal/domain"
)

// BuildDocumentBlocks renders a caption followed by a link to the document.
// Slack cannot forward a file by id across workspaces, so the document is
// shared by reference.
func BuildDocumentBlocks(caption string, doc domain.Attachment) []slacklib.Block {
	blocks := make([]slacklib.Block, 0, 2)
	if caption != "" {
		blocks = append(blocks, slacklib.NewSectionBlock(
			slacklib.NewTextBlockObject(slacklib.MarkdownType, caption, false, false),
			nil,
			nil,
		))
	}

	name := doc.Filename
	if name == "" {
		name = doc.ID
	}
	ref := fmt.Sprintf(":page_facing_up: *%s*", name)
	if doc.URL != "" {
		ref = fmt.Sprintf(":page_facing_up: <%s|%s>", doc.URL, name)
	}
	blocks = append(blocks, slacklib.NewContextBlock("",
		slacklib.NewTextBlockObject(slacklib.MarkdownType, ref, false, false),
	))

	return blocks
}
