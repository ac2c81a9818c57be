package sqlinline

const QSelectProviderCredential = `--sql 95b9e5ea-e0b8-4a64-801b-06e47409857b
select token
from provider_credentials
where provider = $1::text
limit 1;
`

const QUpsertProviderCredential = `--sql 9f2fb111-07f2-4baa-8335-e979100ba118
insert into provider_credentials (provider, token, properties, created_at, updated_at)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`
