// Package schema loads declarative entity-type definitions and defines
// them in a model.Env.
//
// Definitions come from YAML files or CUE packages and share one document
// model:
//
//	types:
//	  - name: Post
//	    resource: posts
//	    attributes:
//	      - {name: id, type: integer}
//	      - {name: title, type: string}
//	      - {name: comments, type: collection, of: Comment, embedded: true}
//
// The CUE form keys types and attributes by name, in declaration order:
//
//	entity: Post: {
//		resource: "posts"
//		attributes: {
//			id: type:    "integer"
//			title: type: "string"
//		}
//	}
//
// Validate reports every problem in a document at once (it does not
// fail fast). Build validates, then defines parents before children.
package schema
