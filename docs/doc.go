// Package docs provides generated OpenAPI documentation.
//
// Narrator API
//
//	@title			Narrator API
//	@version		1.0
//	@description	Turns EPUB ebooks into chaptered M4B audiobooks using a local TTS backend.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/narrator
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/narrator/serve.go -o ./swagger --parseDependency --parseInternal
