package resolver

// postResponse is the top-level shape of the GraphQL shortcode-media reply.
type postResponse struct {
	Data   postData `json:"data"`
	Status string   `json:"status"`
}

type postData struct {
	ShortcodeMedia *shortcodeMedia `json:"shortcode_media"`
}

// shortcodeMedia is a single post: either one image, one video, or a
// sidecar (carousel) of children.
type shortcodeMedia struct {
	Typename              string       `json:"__typename"`
	IsVideo               bool         `json:"is_video"`
	DisplayURL            string       `json:"display_url"`
	VideoURL              string       `json:"video_url"`
	EdgeSidecarToChildren sidecarEdges `json:"edge_sidecar_to_children"`
}

type sidecarEdges struct {
	Edges []sidecarEdge `json:"edges"`
}

type sidecarEdge struct {
	Node sidecarNode `json:"node"`
}

// sidecarNode is one item of a carousel post.
type sidecarNode struct {
	IsVideo    bool   `json:"is_video"`
	DisplayURL string `json:"display_url"`
	VideoURL   string `json:"video_url"`
}

const sidecarTypename = "GraphSidecar"
