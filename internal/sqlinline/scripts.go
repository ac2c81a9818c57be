package sqlinline

const QInsertScript = `--sql 6ff9e73f-12b4-45ac-9546-04f8fc83a5f3
insert into scripts (id, title, content, created_at, updated_at)
values ($1::text, $2::text, $3::text, $4::timestamptz, $4::timestamptz);
`

const QInsertScriptChunk = `--sql 53f72835-2c3e-4fa2-a03c-595c8e5558f3
insert into script_chunks (id, script_id, position, content, start_time, end_time, updated_at)
values ($1::text, $2::text, $3::int, $4::text, $5::float8, $6::float8, $7::timestamptz);
`

const QSelectScript = `--sql 31278a90-03a8-4d97-8ff1-1026348804c2
select id, title, content, created_at, updated_at
from scripts
where id = $1::text;
`

const QSelectScriptExists = `--sql 8f544f87-b422-4333-83e8-9d4fcc35474a
select exists(select 1 from scripts where id = $1::text);
`

const QSelectScriptChunks = `--sql 0b7de88c-8020-42be-9ba1-27100aa4291a
select id, script_id, position, content, start_time, end_time,
       image_url, secondary_image_url, scene_description, symbol_description,
       image_provider, image_metadata, image_generated_at
from script_chunks
where script_id = $1::text
order by position asc;
`

const QSelectScriptChunk = `--sql 7f19a09e-4b3a-44da-87ca-cfd4a42844b6
select id, script_id, position, content, start_time, end_time,
       image_url, secondary_image_url, scene_description, symbol_description,
       image_provider, image_metadata, image_generated_at
from script_chunks
where script_id = $1::text
  and id = $2::text;
`

const QSelectChunksMissingAsset = `--sql 68884322-de78-4091-a916-58cfda30fc57
select id, script_id, position, content, start_time, end_time,
       image_url, secondary_image_url, scene_description, symbol_description,
       image_provider, image_metadata, image_generated_at
from script_chunks
where script_id = $1::text
  and image_url = ''
order by position asc;
`

const QUpdateChunkAsset = `--sql c9ab3751-6a5d-47f7-bb43-3b993fd59268
update script_chunks
set image_url = $3::text,
    secondary_image_url = $4::text,
    scene_description = $5::text,
    symbol_description = $6::text,
    image_provider = $7::text,
    image_metadata = $8::jsonb,
    image_generated_at = $9::timestamptz,
    updated_at = now()
where script_id = $1::text
  and id = $2::text;
`
