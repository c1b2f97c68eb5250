package models

// TextModels are the text generation models a conversation may reference.
var TextModels = []string{
	"falcon-40b-instruct",
	"gpt-neo-2.7b",
	"gpt-j-6b",
	"gpt-neo-1.3b",
	"gpt-neo-125m",
	"gpt-3-davinci",
	"gpt-3-curie",
	"gpt-3-babbage",
	"gpt-3-ada",
	"bloom-176b",
	"bloom-7b1",
	"bloom-3b",
	"bloom-1b7",
	"bloom-560m",
	"bloom-350m",
	"bloom-125m",
	"llama-13b",
	"llama-7b",
	"llama-2-13b",
	"llama-2-7b",
}

// ImageModels are the image generation models a conversation may reference.
var ImageModels = []string{
	"stable-diffusion-v1",
	"dalle-mini",
	"midjourney",
	"dalle-2",
}

// SupportedModel reports whether name is in the catalog for modelType.
func SupportedModel(modelType ModelType, name string) bool {
	var list []string
	switch modelType {
	case ModelTypeText:
		list = TextModels
	case ModelTypeImage:
		list = ImageModels
	default:
		return false
	}
	for _, m := range list {
		if m == name {
			return true
		}
	}
	return false
}
