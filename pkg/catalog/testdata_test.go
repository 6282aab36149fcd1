package catalog

const manageDoc = `{
  "openapi": "3.0.0",
  "info": {"title": "Manage", "version": "1.0"},
  "paths": {
    "/fabrics": {
      "get": {"operationId": "getFabrics", "summary": "List fabrics"},
      "post": {
        "operationId": "createFabric",
        "summary": "Create fabric",
        "requestBody": {"content": {"application/json": {"schema": {"type": "object"}}}}
      }
    },
    "/fabrics/{fabricName}": {
      "parameters": [
        {"name": "fabricName", "in": "path", "required": true, "schema": {"type": "string"}}
      ],
      "get": {
        "operationId": "getFabric",
        "summary": "Get fabric",
        "parameters": [
          {"name": "verbose", "in": "query", "schema": {"type": "boolean"}},
          {"name": "X-Trace", "in": "header", "schema": {"type": "string"}}
        ]
      },
      "delete": {"summary": "Delete fabric"}
    },
    "/vlans/{id}": {
      "delete": {"operationId": "deleteVlan", "summary": "Delete VLAN"},
      "head": {"operationId": "headVlan"}
    }
  }
}`

const yamlDoc = `
openapi: 3.0.0
info:
  title: Analyze
  version: "1.0"
paths:
  /anomalies:
    get:
      operationId: listAnomalies
      parameters:
        - name: limit
          in: query
          required: true
          schema:
            type: integer
`

const collidingDoc = `{
  "openapi": "3.0.0",
  "info": {"title": "Colliding", "version": "1.0"},
  "paths": {
    "/a": {"get": {"operationId": "dup"}},
    "/b": {
      "get": {"operationId": "dup"},
      "post": {"operationId": "get_c"}
    },
    "/c": {"get": {"summary": "no id"}}
  }
}`

const synthesizedFirstDoc = `{
  "openapi": "3.0.0",
  "info": {"title": "Synthesized", "version": "1.0"},
  "paths": {
    "/a": {"get": {"summary": "no id"}},
    "/b": {"get": {"operationId": "get_a"}}
  }
}`
